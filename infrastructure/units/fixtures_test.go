package units

import (
	"fmt"

	"github.com/ahrav/go-autolab/internal/domain"
)

type staticCatalog map[string][]domain.Paper

func (c staticCatalog) Papers(lab string) ([]domain.Paper, error) {
	papers, ok := c[lab]
	if !ok {
		return nil, fmt.Errorf("no catalog for %s", lab)
	}
	return papers, nil
}

func safetyGenome() domain.GenomeData {
	return domain.GenomeData{
		RetrievalPreferences: domain.RetrievalPreferences{
			Keywords:     []string{"autonomous driving safety", "collision avoidance"},
			VenueWeights: map[string]float64{"CVPR": 0.9, "ICRA": 1.0, "CoRL": 1.0},
			YearRange:    domain.YearRange{Min: 2018, Max: 2024},
		},
		ReadingTemplate: domain.ReadingTemplate{
			ExtractFields: []string{"method_name", "safety_guarantees", "failure_modes", "robustness_metrics", "deployment_notes", "limitations"},
		},
		CritiqueFocus: domain.CritiqueFocus{
			Dimensions: []string{"robustness", "rare_events_handling", "safety_metrics"},
			Weights:    map[string]float64{"robustness": 1.0, "rare_events_handling": 1.0, "safety_metrics": 1.0},
		},
		SynthesisStyle: domain.SynthesisStyle{Audience: "safety_engineers", MaxTokens: 600, Format: "structured", Emphasis: "safety_critical_aspects"},
	}
}

func performanceGenome() domain.GenomeData {
	return domain.GenomeData{
		RetrievalPreferences: domain.RetrievalPreferences{
			Keywords:     []string{"real-time perception", "efficient planning"},
			VenueWeights: map[string]float64{"CVPR": 1.0, "NeurIPS": 1.0, "ICML": 0.9},
			YearRange:    domain.YearRange{Min: 2020, Max: 2024},
		},
		ReadingTemplate: domain.ReadingTemplate{
			ExtractFields: []string{"method_name", "performance_metrics", "computational_cost", "benchmark_results", "deployment_notes", "scalability"},
		},
		CritiqueFocus: domain.CritiqueFocus{
			Dimensions: []string{"accuracy", "speed", "computational_efficiency"},
			Weights:    map[string]float64{"accuracy": 1.0, "speed": 1.0, "computational_efficiency": 0.9},
		},
		SynthesisStyle: domain.SynthesisStyle{Audience: "ml_engineers", MaxTokens: 600, Format: "structured", Emphasis: "performance_metrics"},
	}
}

func safetyPapers() []domain.Paper {
	return []domain.Paper{
		{
			Title:           "Safe Reinforcement Learning for Autonomous Driving with Reachability Analysis",
			Venue:           "ICRA",
			Year:            2023,
			MethodCategory:  "safety_verification",
			KeyResults:      map[string]any{"collision_rate": 0.001, "safety_violations": 0.0, "test_scenarios": 10000.0},
			DeploymentNotes: "Requires offline reachability set computation; suitable for structured environments",
		},
		{
			Title:           "Robust Perception Under Adverse Weather Using Multi-Modal Sensor Fusion",
			Venue:           "CVPR",
			Year:            2023,
			MethodCategory:  "robust_perception",
			KeyResults:      map[string]any{"detection_accuracy_rain": 0.92, "detection_accuracy_fog": 0.88, "fps": 25.0},
			DeploymentNotes: "Requires calibrated multi-modal sensors; proven in real-world testing",
		},
		{
			Title:           "Uncertainty-Aware Planning for Safety-Critical Autonomous Driving",
			Venue:           "CoRL",
			Year:            2022,
			MethodCategory:  "uncertainty_estimation",
			KeyResults:      map[string]any{"safety_score": 0.95, "comfort_score": 0.82, "planning_time_ms": 50.0},
			DeploymentNotes: "Suitable for urban environments; requires uncertainty-calibrated perception",
		},
	}
}

func performancePapers() []domain.Paper {
	return []domain.Paper{
		{
			Title:           "End-to-End Autonomous Driving with Transformers",
			Venue:           "NeurIPS",
			Year:            2023,
			MethodCategory:  "end_to_end_learning",
			KeyResults:      map[string]any{"nuscenes_score": 0.68, "planning_accuracy": 0.91, "fps": 30.0},
			DeploymentNotes: "Requires large-scale training data; excellent generalization",
		},
		{
			Title:           "Real-Time 3D Object Detection with Efficient Neural Architectures",
			Venue:           "CVPR",
			Year:            2023,
			MethodCategory:  "efficient_perception",
			KeyResults:      map[string]any{"map_score": 0.72, "fps": 60.0, "latency_ms": 16.0},
			DeploymentNotes: "Optimized for edge deployment; minimal computational overhead",
		},
		{
			Title:           "Model Predictive Control with Learned Dynamics for Autonomous Driving",
			Venue:           "ICRA",
			Year:            2022,
			MethodCategory:  "model_based_control",
			KeyResults:      map[string]any{"tracking_error_m": 0.15, "comfort_score": 0.89, "planning_time_ms": 30.0},
			DeploymentNotes: "Requires vehicle-specific dynamics learning; excellent control performance",
		},
	}
}

func testCatalog() staticCatalog {
	return staticCatalog{
		domain.SafetyLab:      safetyPapers(),
		domain.PerformanceLab: performancePapers(),
	}
}

func labState(lab string, genome domain.GenomeData, event domain.Event) domain.State {
	return domain.NewState().WithMultiple(map[string]any{
		domain.KeyLabName.Name(): lab,
		domain.KeyGenome.Name():  genome,
		domain.KeyEvent.Name():   event,
	})
}

func cutInHigh() domain.Event {
	return domain.Event{ID: "evt-1", Type: domain.EventCutIn, Severity: domain.SeverityHigh, Weather: "rain"}
}
