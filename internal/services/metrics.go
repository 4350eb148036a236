package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// recordsAppended counts committed records by entry point
	// ("crystal" or "room"). Idempotent replays are not counted.
	recordsAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crystarise_records_appended_total",
			Help: "Total number of records appended to crystals.",
		},
		[]string{"entry"},
	)

	// roomJoins counts join attempts that reached the admission rules,
	// by result ("joined" or "refused").
	roomJoins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crystarise_room_joins_total",
			Help: "Total number of room join attempts by result.",
		},
		[]string{"result"},
	)

	// roomsCreated counts created rooms by mode.
	roomsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crystarise_rooms_created_total",
			Help: "Total number of rooms created.",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(recordsAppended, roomJoins, roomsCreated)
}
