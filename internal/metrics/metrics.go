package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Taps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapcoin_taps_total",
			Help: "Tap attempts by result",
		},
		[]string{"result"},
	)

	TaskRewards = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapcoin_task_rewards_total",
			Help: "Task reward attempts by code and result",
		},
		[]string{"code", "result"},
	)

	ReferralCredits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapcoin_referral_credits_total",
			Help: "Referral bonuses credited to referrers",
		},
	)

	UsersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapcoin_users_created_total",
			Help: "New ledger rows",
		},
	)

	PowerupsGranted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapcoin_powerups_granted_total",
			Help: "Power-up grants by provider and result",
		},
		[]string{"provider", "result"},
	)

	PowerupsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapcoin_powerups_consumed_total",
			Help: "Power-up units consumed by code",
		},
		[]string{"code"},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapcoin_api_requests_total",
			Help: "API requests by route and status",
		},
		[]string{"route", "status"},
	)
)
