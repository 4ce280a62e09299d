package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is the timed experiment description driving one simulation run.
// Loaded from YAML via LoadScenario(path).
type Scenario struct {
	EndOfSimulation float64        `yaml:"end_of_simulation"`
	Steps           []ScenarioStep `yaml:"steps,omitempty"`
}

// ScenarioStep is a single timed action. Exactly one of the action fields
// should be set.
type ScenarioStep struct {
	At                float64            `yaml:"at"`
	SetRate           *float64           `yaml:"set_rate,omitempty"`
	AddClients        *int               `yaml:"add_clients,omitempty"`
	DelClients        *int               `yaml:"del_clients,omitempty"`
	ChangeServiceTime *ServiceTimeChange `yaml:"change_service_time,omitempty"`
}

// ServiceTimeChange retargets one replica's service-time distributions.
type ServiceTimeChange struct {
	Replica        int     `yaml:"replica"`
	OptionalMean   float64 `yaml:"optional_mean"`
	OptionalStdev  float64 `yaml:"optional_stdev"`
	MandatoryMean  float64 `yaml:"mandatory_mean"`
	MandatoryStdev float64 `yaml:"mandatory_stdev"`
}

// DefaultScenario is a steady open-loop load of 50 req/s for 100 seconds.
func DefaultScenario() *Scenario {
	rate := 50.0
	return &Scenario{
		EndOfSimulation: 100,
		Steps: []ScenarioStep{
			{At: 0, SetRate: &rate},
		},
	}
}

// LoadScenario reads and validates a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks scenario invariants.
func (sc *Scenario) Validate() error {
	if sc.EndOfSimulation <= 0 {
		return fmt.Errorf("scenario does not define end_of_simulation")
	}
	for i, st := range sc.Steps {
		if st.At < 0 {
			return fmt.Errorf("step %d: negative time %v", i, st.At)
		}
		if st.At > sc.EndOfSimulation {
			return fmt.Errorf("step %d: time %v beyond end_of_simulation %v", i, st.At, sc.EndOfSimulation)
		}
		actions := 0
		if st.SetRate != nil {
			actions++
		}
		if st.AddClients != nil {
			actions++
		}
		if st.DelClients != nil {
			actions++
		}
		if st.ChangeServiceTime != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("step %d: want exactly one action, got %d", i, actions)
		}
	}
	return nil
}
