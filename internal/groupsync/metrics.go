package groupsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	groupSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "group_syncs_total",
		Help: "Group sync runs by result.",
	}, []string{"result"})

	syncChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_changes_total",
		Help: "Role changes made by group syncs by kind.",
	}, []string{"kind"})

	userSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "user_syncs_total",
		Help: "Login triggered user syncs by result.",
	}, []string{"result"})
)

func countChanges(changes []Change) {
	for _, c := range changes {
		syncChanges.WithLabelValues(c.Kind.String()).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}
