package sparse

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"

	"github.com/openfluke/dynsparse/nn"
)

func intp(v int) *int { return &v }

func threeLayerNetwork(seed int64) *nn.Network {
	rng := rand.New(rand.NewSource(seed))
	return nn.NewNetwork(40,
		nn.InitDenseLayer(40, 60, nn.ActivationReLU, rng),
		nn.InitDenseLayer(60, 50, nn.ActivationReLU, rng),
		nn.InitDenseLayer(50, 3, nn.ActivationLinear, rng),
	)
}

func TestMaskStoreDensity(t *testing.T) {
	net := threeLayerNetwork(1)
	s, err := NewMaskStore(net, nil, nil, 2, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Fatalf("Expected 3 sparse layers, got %d", s.Len())
	}

	for i := 0; i < s.Len(); i++ {
		layer := net.Layers[s.LayerIndex(i)]
		mask := s.Mask(i)
		size := len(layer.Kernel)

		// num_params is the realized mask size, exactly
		if s.NumParams(i) != mask.Count() {
			t.Errorf("layer %d: num_params %d != mask size %d", i, s.NumParams(i), mask.Count())
		}

		// Within 5 standard deviations of the Bernoulli target
		shape := layer.WeightShape()
		onPerc := math.Min(2*float64(shape[0]+shape[1])/float64(size), 1)
		mean := onPerc * float64(size)
		sd := math.Sqrt(float64(size) * onPerc * (1 - onPerc))
		if math.Abs(float64(mask.Count())-mean) > 5*sd+1 {
			t.Errorf("layer %d: mask size %d far from expected %.1f", i, mask.Count(), mean)
		}

		for j, m := range mask {
			if !m && layer.Kernel[j] != 0 {
				t.Fatalf("layer %d: weight %d survives outside the mask", i, j)
			}
		}
	}
}

func TestMaskStoreRange(t *testing.T) {
	cases := []struct {
		start, end *int
		want       []int
	}{
		{nil, nil, []int{0, 1, 2}},
		{intp(1), nil, []int{1, 2}},
		{nil, intp(-1), []int{0, 1}},
		{intp(-2), intp(-1), []int{1}},
		{intp(1), intp(1), nil},
	}
	for _, c := range cases {
		s, err := NewMaskStore(threeLayerNetwork(1), c.start, c.end, 2, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatal(err)
		}
		if s.Len() != len(c.want) {
			t.Errorf("[%s:%s]: expected %d layers, got %d", bound(c.start), bound(c.end), len(c.want), s.Len())
			continue
		}
		for i, li := range c.want {
			if s.LayerIndex(i) != li {
				t.Errorf("[%s:%s]: expected layer %d at %d, got %d", bound(c.start), bound(c.end), li, i, s.LayerIndex(i))
			}
		}
	}

	for _, bad := range [][2]*int{{intp(2), intp(1)}, {intp(0), intp(4)}, {intp(-5), nil}} {
		_, err := NewMaskStore(threeLayerNetwork(1), bad[0], bad[1], 2, rand.New(rand.NewSource(1)))
		if errors.Cause(err) != ErrSparseRange {
			t.Errorf("[%s:%s]: expected ErrSparseRange, got %v", bound(bad[0]), bound(bad[1]), err)
		}
	}
}

func TestMaskStoreReplace(t *testing.T) {
	s, _ := NewMaskStore(threeLayerNetwork(1), intp(2), nil, 2, rand.New(rand.NewSource(1)))
	budget := s.NumParams(0)

	next := make(Mask, len(s.Mask(0)))
	next[0] = true
	if err := s.Replace(0, next); err != nil {
		t.Fatal(err)
	}
	if s.Sizes()[0] != 1 {
		t.Errorf("Expected mask size 1, got %d", s.Sizes()[0])
	}
	if s.NumParams(0) != budget {
		t.Error("Replace must not change the connection budget")
	}
	if err := s.Replace(0, Mask{true}); err == nil {
		t.Error("Expected shape error")
	}
}

func TestMaskOps(t *testing.T) {
	a, b := maskOf(1, 1, 0, 0), maskOf(1, 0, 1, 0)
	if !equalMask(a.And(b), maskOf(1, 0, 0, 0)) || !equalMask(a.Or(b), maskOf(1, 1, 1, 0)) {
		t.Error("Unexpected And/Or result")
	}
	if a.Count() != 2 || !maskOf(1, 0, 0, 0).Subset(a) || b.Subset(a) {
		t.Error("Unexpected Count/Subset result")
	}
}
