package comm

import "testing"

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		rank, size int
	}{
		{"serial", nil, 0, 1},
		{"openmpi", map[string]string{"OMPI_COMM_WORLD_RANK": "2", "OMPI_COMM_WORLD_SIZE": "4"}, 2, 4},
		{"pmi", map[string]string{"PMI_RANK": "1", "PMI_SIZE": "2"}, 1, 2},
		{"rank out of range", map[string]string{"PMI_RANK": "5", "PMI_SIZE": "2"}, 0, 2},
		{"garbage size", map[string]string{"PMI_SIZE": "x"}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fromEnv(func(k string) string { return tt.env[k] })
			if c.Rank() != tt.rank || c.Size() != tt.size {
				t.Errorf("got %d/%d, want %d/%d", c.Rank(), c.Size(), tt.rank, tt.size)
			}
		})
	}
}

func TestPartitionBalanced(t *testing.T) {
	var pts []Point
	for i := 0; i < 10; i++ {
		pts = append(pts, Point{ID: i + 1, X: float64(i)})
	}

	part := Partition(pts, 3)
	counts := make(map[int]int)
	for _, p := range part {
		counts[p]++
	}
	if len(part) != 10 {
		t.Fatalf("assigned %d points, want 10", len(part))
	}
	for idx := 0; idx < 3; idx++ {
		if counts[idx] < 3 || counts[idx] > 4 {
			t.Errorf("partition %d has %d points", idx, counts[idx])
		}
	}
	// bisection along x keeps neighbours together
	if part[1] != 0 || part[10] != 2 {
		t.Errorf("ends in partitions %d and %d", part[1], part[10])
	}
}

func TestPartitionSingle(t *testing.T) {
	part := Partition([]Point{{ID: 7}, {ID: 8}}, 1)
	if part[7] != 0 || part[8] != 0 {
		t.Errorf("got %v", part)
	}
}
