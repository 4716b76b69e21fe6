package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Template is a ready to run project: parameter files and a model.
type Template struct {
	Description string
	// Entry is the file femstage run or optimize is pointed at.
	Entry string
	Files map[string]string
}

const trussModel = `Begin ModelPartData
End ModelPartData

Begin Properties 1
    YOUNG_MODULUS 1000.0
    CROSS_AREA    1.0
    DENSITY       2.0
End Properties

Begin Nodes
    1   0.0   0.0   0.0
    2   1.0   0.0   0.0
    3   0.0   1.0   0.0
End Nodes

Begin Elements TrussElement2D2N
    1   1   1 2
    2   1   3 2
End Elements

Begin NodalData DISPLACEMENT_X
    1   1   0.0
    3   1   0.0
End NodalData

Begin NodalData DISPLACEMENT_Y
    1   1   0.0
    3   1   0.0
End NodalData

Begin NodalData POINT_LOAD_Y
    2   0   -10.0
End NodalData

Begin SubModelPart Supports
    Begin SubModelPartNodes
        1
        3
    End SubModelPartNodes
End SubModelPart

Begin SubModelPart Tip
    Begin SubModelPartNodes
        2
    End SubModelPartNodes
End SubModelPart
`

const trussStatic = `{
    "problem_data": {
        "problem_name": "truss",
        "parallel_type": "OpenMP",
        "echo_level": 0,
        "start_time": 0.0,
        "end_time": 1.0
    },
    "solver_settings": {
        "solver_type": "static",
        "model_part_name": "Structure",
        "domain_size": 2,
        "model_import_settings": {
            "input_type": "mdpa",
            "input_filename": "truss"
        },
        "time_stepping": {
            "time_step": 1.0
        }
    },
    "processes": [],
    "output_processes": [{
        "type": "json_output",
        "model_part_name": "Structure",
        "output_variables": ["DISPLACEMENT", "REACTION"]
    }, {
        "type": "result_store",
        "model_part_name": "Structure",
        "output_variables": ["DISPLACEMENT", "REACTION"],
        "store_dir": ".femstage/runs"
    }]
}
`

const trussDynamic = `{
    "problem_data": {
        "problem_name": "truss_dynamic",
        "parallel_type": "OpenMP",
        "echo_level": 0,
        "start_time": 0.0,
        "end_time": 2.0
    },
    "solver_settings": {
        "solver_type": "dynamic",
        "model_part_name": "Structure",
        "domain_size": 2,
        "model_import_settings": {
            "input_type": "mdpa",
            "input_filename": "truss"
        },
        "time_stepping": {
            "time_step": 0.01
        }
    },
    "processes": [{
        "type": "assign_scalar_variable_process",
        "model_part_name": "Structure.Tip",
        "variable_name": "POINT_LOAD_Y",
        "value": 0.0,
        "constrained": false,
        "interval": [0.5, "End"]
    }],
    "output_processes": [{
        "type": "result_store",
        "model_part_name": "Structure",
        "output_variables": ["DISPLACEMENT", "VELOCITY"],
        "store_dir": ".femstage/runs"
    }]
}
`

const trussOptimization = `{
    "optimization_settings": {
        "model_settings": {
            "model_part_name": "Design",
            "domain_size": 2,
            "model_import_settings": {
                "input_type": "mdpa",
                "input_filename": "truss"
            },
            "fixed_sub_model_part_name": "Supports"
        },
        "objectives": [{
            "identifier": "compliance",
            "type": "minimization",
            "response_settings": {
                "response_type": "strain_energy",
                "primal_settings": "ProjectParameters.json"
            }
        }],
        "constraints": [{
            "identifier": "mass",
            "type": "<",
            "response_settings": {
                "response_type": "mass",
                "model_part_name": "MassPart",
                "domain_size": 2,
                "model_import_settings": {
                    "input_type": "mdpa",
                    "input_filename": "truss"
                }
            }
        }],
        "optimization_algorithm": {
            "optimizer_type": "steepest_descent",
            "max_iterations": 20,
            "relative_tolerance": 1e-4,
            "line_search": {
                "step_size": 0.02,
                "normalize_search_direction": true
            }
        },
        "output": {
            "output_directory": "Optimization_Results"
        }
    }
}
`

var Templates = map[string]*Template{
	"truss_static": {
		Description: "linear static truss under a tip load",
		Entry:       "ProjectParameters.json",
		Files: map[string]string{
			"ProjectParameters.json": trussStatic,
			"truss.mdpa":             trussModel,
		},
	},
	"truss_dynamic": {
		Description: "truss loaded at the tip until t=0.5, then vibrating freely",
		Entry:       "ProjectParameters.json",
		Files: map[string]string{
			"ProjectParameters.json": trussDynamic,
			"truss.mdpa":             trussModel,
		},
	},
	"truss_optimization": {
		Description: "steepest descent on the truss compliance",
		Entry:       "optimization_parameters.json",
		Files: map[string]string{
			"optimization_parameters.json": trussOptimization,
			"ProjectParameters.json":       trussStatic,
			"truss.mdpa":                   trussModel,
		},
	},
}

func GetTemplate(name string) *Template {
	t, ok := Templates[name]
	if !ok {
		return nil
	}
	return t
}

func ListTemplates() []string {
	names := make([]string, 0, len(Templates))
	for name := range Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WriteTo writes the template files into dir. Existing files are kept
// unless force is set.
func (t *Template) WriteTo(dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(t.Files))
	for name := range t.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	if !force {
		for _, name := range names {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return nil, fmt.Errorf("%s already exists", filepath.Join(dir, name))
			}
		}
	}
	var written []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(t.Files[name]), 0644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
