package kubectl

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/nexusops/forge/pkg/cluster"
)

// Just enough of the kubectl JSON shapes. Decoding through these
// rather than client-go types keeps the dependency surface at the
// binary boundary.

type deploymentDoc struct {
	Status struct {
		Replicas            int `json:"replicas"`
		UpdatedReplicas     int `json:"updatedReplicas"`
		ReadyReplicas       int `json:"readyReplicas"`
		UnavailableReplicas int `json:"unavailableReplicas"`
	} `json:"status"`
	Spec struct {
		Replicas *int `json:"replicas"`
	} `json:"spec"`
}

type podListDoc struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Phase             string `json:"phase"`
			ContainerStatuses []struct {
				Ready        bool   `json:"ready"`
				RestartCount int    `json:"restartCount"`
				Image        string `json:"image"`
				State        map[string]struct {
					Reason string `json:"reason"`
				} `json:"state"`
			} `json:"containerStatuses"`
		} `json:"status"`
	} `json:"items"`
}

type eventListDoc struct {
	Items []struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"items"`
}

func parseDeployment(raw []byte) (cluster.RolloutObservation, error) {
	var doc deploymentDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return cluster.RolloutObservation{}, errors.Wrap(err, "parsing deployment")
	}
	desired := doc.Status.Replicas
	if doc.Spec.Replicas != nil {
		desired = *doc.Spec.Replicas
	}
	return cluster.RolloutObservation{
		At:          time.Now().UTC(),
		Desired:     desired,
		Updated:     doc.Status.UpdatedReplicas,
		Ready:       doc.Status.ReadyReplicas,
		Unavailable: doc.Status.UnavailableReplicas,
	}, nil
}

func parsePods(raw []byte) ([]cluster.PodStatus, error) {
	var doc podListDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing pod list")
	}
	var pods []cluster.PodStatus
	for _, item := range doc.Items {
		pod := cluster.PodStatus{
			Name:  item.Metadata.Name,
			Phase: item.Status.Phase,
		}
		// The worst container speaks for the pod.
		ready := len(item.Status.ContainerStatuses) > 0
		for _, cs := range item.Status.ContainerStatuses {
			if !cs.Ready {
				ready = false
			}
			if cs.RestartCount > pod.Restarts {
				pod.Restarts = cs.RestartCount
			}
			if pod.ImageTag == "" {
				pod.ImageTag = imageTag(cs.Image)
			}
			for state, detail := range cs.State {
				switch state {
				case "waiting":
					pod.State = cluster.StateWaiting
					pod.Reason = detail.Reason
				case "terminated":
					if pod.State != cluster.StateWaiting {
						pod.State = cluster.StateTerminated
						pod.Reason = detail.Reason
					}
				case "running":
					if pod.State == "" {
						pod.State = cluster.StateRunning
					}
				}
			}
		}
		pod.Ready = ready
		pods = append(pods, pod)
	}
	return pods, nil
}

func parseEvents(raw []byte) ([]string, error) {
	var doc eventListDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing event list")
	}
	var events []string
	for _, item := range doc.Items {
		line := item.Message
		if item.Reason != "" {
			line = item.Type + " " + item.Reason + " " + item.Message
		}
		events = append(events, line)
	}
	return events, nil
}
