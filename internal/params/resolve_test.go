package params_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/femstage/internal/params"
)

var _ = Describe("Resolve", func() {
	var schema params.Schema

	BeforeEach(func() {
		schema = params.MustSchema(`{
			"solver_type": "FractionalStep",
			"echo_level": 0,
			"dynamic_tau": 0.01,
			"compute_reactions": false,
			"skin_parts": [""],
			"time_stepping": {
				"automatic_time_step": false,
				"CFL_number": 1,
				"maximum_delta_time": 0.01
			}
		}`)
	})

	It("inserts every missing default", func() {
		user := params.MustParse(`{"echo_level": 2}`)

		out, err := params.Resolve(user, schema)
		Expect(err).NotTo(HaveOccurred())

		for _, key := range schema.Defaults.Keys() {
			Expect(out.Has(key)).To(BeTrue(), key)
		}
		Expect(out.String("solver_type")).To(Equal("FractionalStep"))
		Expect(out.Float("dynamic_tau")).To(Equal(0.01))
	})

	It("never overwrites user values", func() {
		user := params.MustParse(`{"echo_level": 2, "solver_type": "Monolithic", "extra": "kept"}`)

		out, err := params.Resolve(user, schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Int("echo_level")).To(Equal(2))
		Expect(out.String("solver_type")).To(Equal("Monolithic"))
		Expect(out.String("extra")).To(Equal("kept"))
	})

	It("merges nested trees key by key", func() {
		user := params.MustParse(`{"time_stepping": {"automatic_time_step": true}}`)

		out, err := params.Resolve(user, schema)
		Expect(err).NotTo(HaveOccurred())

		ts := out.Sub("time_stepping")
		Expect(ts.Bool("automatic_time_step")).To(BeTrue())
		Expect(ts.Int("CFL_number")).To(Equal(1))
		Expect(ts.Float("maximum_delta_time")).To(Equal(0.01))
	})

	It("does not mutate the caller's tree", func() {
		user := params.MustParse(`{"time_stepping": {"automatic_time_step": true}}`)
		before := user.Clone()

		_, err := params.Resolve(user, schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Equal(before)).To(BeTrue())
		Expect(user.Has("echo_level")).To(BeFalse())
	})

	It("accepts an integer where a real is expected", func() {
		out, err := params.Resolve(params.MustParse(`{"dynamic_tau": 1}`), schema)
		Expect(err).NotTo(HaveOccurred())
		v, _ := out.Get("dynamic_tau")
		Expect(v).To(Equal(1.0))
	})

	It("rejects a string where an integer is expected", func() {
		_, err := params.Resolve(params.MustParse(`{"echo_level": "loud"}`), schema)
		Expect(err).To(MatchError(params.ErrConfiguration))

		var cfgErr *params.ConfigError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
		Expect(cfgErr.Path).To(Equal("echo_level"))
	})

	It("rejects a fractional real where an integer is expected", func() {
		_, err := params.Resolve(params.MustParse(`{"time_stepping": {"CFL_number": 0.5}}`), schema)
		Expect(err).To(MatchError(params.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("time_stepping.CFL_number"))
	})

	It("accepts a whole real where an integer is expected", func() {
		out, err := params.Resolve(params.MustParse(`{"echo_level": 3.0}`), schema)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Int("echo_level")).To(Equal(3))
	})

	It("rejects a whole real outside the integer range", func() {
		_, err := params.Resolve(params.MustParse(`{"echo_level": 1e30}`), schema)
		Expect(err).To(MatchError(params.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("echo_level"))

		_, err = params.Resolve(params.MustParse(`{"echo_level": 9223372036854775808.0}`), schema)
		Expect(err).To(MatchError(params.ErrConfiguration))
	})

	It("rejects an integer literal too large for int64", func() {
		_, err := params.Resolve(params.MustParse(`{"echo_level": 99999999999999999999}`), schema)
		Expect(err).To(MatchError(params.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("echo_level"))
	})

	It("rejects a scalar in place of a nested tree", func() {
		_, err := params.Resolve(params.MustParse(`{"time_stepping": 3}`), schema)
		Expect(err).To(MatchError(params.ErrConfiguration))
	})

	It("fails on a required key without default", func() {
		required := params.MustSchema(`{"echo_level": 0}`, "model_part_name")

		_, err := params.Resolve(params.New(), required)
		Expect(err).To(MatchError(params.ErrConfiguration))
		Expect(err.Error()).To(ContainSubstring("model_part_name"))

		_, err = params.Resolve(params.MustParse(`{"model_part_name": "FluidModelPart"}`), required)
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("Schema.Extend", func() {
	base := params.MustSchema(`{
		"buffer_size": 1,
		"echo_level": 0,
		"linear_solver_settings": {"solver_type": "amgcl", "tolerance": 1e-6}
	}`, "model_part_name")

	derived := params.MustSchema(`{
		"buffer_size": 2,
		"linear_solver_settings": {"solver_type": "cg"}
	}`, "domain_size")

	It("lets the derived defaults win and inherits the rest", func() {
		s := derived.Extend(base)

		Expect(s.Defaults.Int("buffer_size")).To(Equal(2))
		Expect(s.Defaults.Int("echo_level")).To(Equal(0))
		ls := s.Defaults.Sub("linear_solver_settings")
		Expect(ls.String("solver_type")).To(Equal("cg"))
		Expect(ls.Float("tolerance")).To(Equal(1e-6))
		Expect(s.Required).To(ConsistOf("model_part_name", "domain_size"))
	})

	It("chains over several levels", func() {
		top := params.MustSchema(`{"echo_level": 3}`)
		s := top.Extend(derived.Extend(base))

		Expect(s.Defaults.Int("echo_level")).To(Equal(3))
		Expect(s.Defaults.Int("buffer_size")).To(Equal(2))
	})

	It("leaves the base schema untouched", func() {
		_ = derived.Extend(base)
		Expect(base.Defaults.Int("buffer_size")).To(Equal(1))
	})
})
