package trainstore_test

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/earsense/pkg/classify"
	"github.com/MrWong99/earsense/pkg/trainstore"
)

func sampleSet() classify.TrainingSet {
	return classify.TrainingSet{
		Features: [][]float64{
			{1.5, -2.25, 3e9},
			{},
			{math.SmallestNonzeroFloat64, math.MaxFloat64, -0.0, 42},
		},
		Labels: []int{0, -1, 7},
		K:      3,
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	t.Parallel()

	want := sampleSet()
	data, err := trainstore.Marshal(want)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := trainstore.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.K != want.K || !slices.Equal(got.Labels, want.Labels) || len(got.Features) != len(want.Features) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want.Features {
		if !slices.Equal(got.Features[i], want.Features[i]) {
			t.Errorf("features[%d] = %v, want %v", i, got.Features[i], want.Features[i])
		}
	}
}

func TestUnmarshal_Corruption(t *testing.T) {
	t.Parallel()

	good, err := trainstore.Marshal(sampleSet())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	flipped := bytes.Clone(good)
	flipped[20] ^= 0xff

	badMagic := bytes.Clone(good)
	copy(badMagic, "NOPE")

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "header only", data: good[:14]},
		{name: "truncated", data: good[:len(good)-9]},
		{name: "flipped byte", data: flipped},
		{name: "bad magic", data: badMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts, err := trainstore.Unmarshal(tt.data)
			if !errors.Is(err, trainstore.ErrCorruptModel) {
				t.Fatalf("err = %v, want ErrCorruptModel", err)
			}
			var ce *trainstore.CorruptModelError
			if !errors.As(err, &ce) || ce.Reason == "" {
				t.Errorf("err = %#v, want *CorruptModelError with a reason", err)
			}
			if ts.Len() != 0 {
				t.Errorf("partial data returned: %d exemplars", ts.Len())
			}
		})
	}
}

func TestMarshal_Misaligned(t *testing.T) {
	t.Parallel()

	_, err := trainstore.Marshal(classify.TrainingSet{Features: [][]float64{{1}}, Labels: nil})
	if !errors.Is(err, classify.ErrMisaligned) {
		t.Errorf("err = %v, want ErrMisaligned", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := trainstore.Encode(&buf, sampleSet()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ts, err := trainstore.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ts.Len() != 3 {
		t.Errorf("Len = %d, want 3", ts.Len())
	}
}

func TestKey_Validate(t *testing.T) {
	t.Parallel()

	if err := (trainstore.Key{Profile: "alice", Dataset: "gesture-spectrum"}).Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
	bad := []trainstore.Key{
		{Profile: "", Dataset: "x"},
		{Profile: "alice", Dataset: ""},
		{Profile: "..", Dataset: "x"},
		{Profile: "a/b", Dataset: "x"},
		{Profile: "alice", Dataset: `..\evil`},
	}
	for _, k := range bad {
		if err := k.Validate(); !errors.Is(err, trainstore.ErrInvalidKey) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidKey", k, err)
		}
	}
}

func TestWithKey(t *testing.T) {
	t.Parallel()

	_, err := trainstore.Unmarshal(nil)
	key := trainstore.Key{Profile: "p", Dataset: "d"}
	err = trainstore.WithKey(err, key)
	var ce *trainstore.CorruptModelError
	if !errors.As(err, &ce) || ce.Key != key {
		t.Fatalf("err = %v, want key %v", err, key)
	}
	plain := errors.New("boom")
	if trainstore.WithKey(plain, key) != plain {
		t.Error("non-corrupt errors must pass through unchanged")
	}
}
