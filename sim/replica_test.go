package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deterministicReplica builds a replica whose service times have zero
// variance, so completion times are exact.
func deterministicReplica(t *testing.T, k *Kernel, timeSlice, optional, mandatory float64) *Replica {
	t.Helper()
	cfg := DefaultReplicaConfig()
	cfg.TimeSlice = timeSlice
	cfg.TimeOptional = ServiceTime{Mean: optional, Stdev: 0}
	cfg.TimeMandatory = ServiceTime{Mean: mandatory, Stdev: 0}
	cfg.DimmerGain = 0
	return NewReplica(k, 0, rand.New(rand.NewSource(1)), cfg)
}

func TestReplica_SingleRequest_CompletesAfterServiceTime(t *testing.T) {
	k := NewKernel(t.TempDir())
	r := deterministicReplica(t, k, 0.25, 0.5, 0.125)

	var done *Request
	r.Serve(&Request{ID: "a", WithOptional: true, OnReply: func(req *Request) { done = req }})
	k.Run(2)

	require.NotNil(t, done, "request never completed")
	assert.Equal(t, 0.5, done.Departure, "500ms of service across two 250ms quanta")
}

func TestReplica_TwoRequests_ProcessorSharingInterleaves(t *testing.T) {
	// GIVEN two 0.5s requests sharing one replica with a 0.25s slice
	k := NewKernel(t.TempDir())
	r := deterministicReplica(t, k, 0.25, 0.5, 0.5)

	var departures []float64
	reply := func(req *Request) { departures = append(departures, req.Departure) }
	r.Serve(&Request{ID: "a", WithOptional: true, OnReply: reply})
	r.Serve(&Request{ID: "b", WithOptional: true, OnReply: reply})

	// WHEN the simulation runs
	k.Run(2)

	// THEN both observe context switching: neither finishes in 0.5s
	require.Len(t, departures, 2)
	assert.Equal(t, 0.75, departures[0])
	assert.Equal(t, 1.0, departures[1])
}

func TestReplica_ServiceTimeClampedAtZero(t *testing.T) {
	k := NewKernel(t.TempDir())
	r := deterministicReplica(t, k, 0.25, 0.5, -1)

	got := r.drawServiceTime(false)
	if got != 0 {
		t.Errorf("drawServiceTime = %v, want clamp to 0", got)
	}
}

func TestReplica_ActiveTime_TracksBusyPeriod(t *testing.T) {
	k := NewKernel(t.TempDir())
	r := deterministicReplica(t, k, 0.25, 0.5, 0.125)

	r.Serve(&Request{ID: "a", WithOptional: true, OnReply: func(*Request) {}})
	k.Run(3)

	assert.Equal(t, 0.5, r.ActiveTime(), "replica was busy only while serving the 0.5s request")
}

func TestReplica_ReportLoop_WritesServerFile(t *testing.T) {
	dir := t.TempDir()
	k := NewKernel(dir)
	r := deterministicReplica(t, k, 0.25, 0.5, 0.125)

	r.Serve(&Request{ID: "a", WithOptional: true, OnReply: func(*Request) {}})
	k.Run(2.5)
	require.NoError(t, k.Close())

	assert.FileExists(t, dir+"/sim-server0.csv")
}

func TestReplicaConfig_Validate(t *testing.T) {
	mutate := func(fn func(*ReplicaConfig)) ReplicaConfig {
		cfg := DefaultReplicaConfig()
		fn(&cfg)
		return cfg
	}
	cases := []struct {
		name string
		cfg  ReplicaConfig
		ok   bool
	}{
		{"default", DefaultReplicaConfig(), true},
		// a zero time slice would pin the scheduler at one timestamp forever
		{"zero time slice", mutate(func(c *ReplicaConfig) { c.TimeSlice = 0 }), false},
		{"negative time slice", mutate(func(c *ReplicaConfig) { c.TimeSlice = -0.01 }), false},
		{"zero report period", mutate(func(c *ReplicaConfig) { c.ReportPeriod = 0 }), false},
		{"zero optional mean", mutate(func(c *ReplicaConfig) { c.TimeOptional.Mean = 0 }), false},
		{"negative mandatory mean", mutate(func(c *ReplicaConfig) { c.TimeMandatory.Mean = -1 }), false},
		{"negative stdev", mutate(func(c *ReplicaConfig) { c.TimeOptional.Stdev = -0.1 }), false},
		{"zero mandatory mean", mutate(func(c *ReplicaConfig) { c.TimeMandatory.Mean = 0 }), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestReplica_Dimmer_ShedsUnderOverload(t *testing.T) {
	// GIVEN a replica whose setpoint is far below its service time
	k := NewKernel(t.TempDir())
	cfg := DefaultReplicaConfig()
	cfg.TimeSlice = 0.25
	cfg.TimeOptional = ServiceTime{Mean: 2, Stdev: 0}
	cfg.Setpoint = 0.1
	cfg.DimmerGain = 0.5
	r := NewReplica(k, 0, rand.New(rand.NewSource(1)), cfg)

	r.Serve(&Request{ID: "slow", WithOptional: true, OnReply: func(*Request) {}})
	k.Run(5)

	// THEN the controller has dimmed optional content
	assert.Less(t, r.Dimmer, 1.0)
	assert.GreaterOrEqual(t, r.Dimmer, 0.0)
}
