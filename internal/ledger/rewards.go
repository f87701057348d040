package ledger

// TaskRule describes how a task code pays out.
type TaskRule struct {
	Amount int64
	// OncePerDay limits the reward to one claim per calendar day.
	OncePerDay bool
	// OneTime limits the reward to one claim per user, ever.
	OneTime bool
	// CreditsReferrerInstead marks codes whose reward is paid through the
	// referral path when an invited user joins; claiming them directly pays nothing.
	CreditsReferrerInstead bool
}

const (
	TaskDailyCheckin     = "daily_checkin"
	TaskInviteFriend     = "invite_friend"
	TaskInstagramFollow  = "instagram_follow"
	TaskTelegramJoin     = "telegram_join"
	TaskXFollow          = "x_follow"
	TaskYoutubeSubscribe = "youtube_subscribe"
	TaskWatchAd          = "watch_ad"
)

var Rewards = map[string]TaskRule{
	TaskDailyCheckin:     {Amount: 1000, OncePerDay: true},
	TaskInviteFriend:     {CreditsReferrerInstead: true},
	TaskInstagramFollow:  {Amount: 500, OneTime: true},
	TaskTelegramJoin:     {Amount: 500, OneTime: true},
	TaskXFollow:          {Amount: 500, OneTime: true},
	TaskYoutubeSubscribe: {Amount: 500, OneTime: true},
	TaskWatchAd:          {Amount: 100},
}
