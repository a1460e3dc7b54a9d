package config

import "time"

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// Deposit refunds.
	RefundDueAfter     time.Duration `yaml:"refund_due_after"`
	RefundMaxAttempts  int           `yaml:"refund_max_attempts"`
	RefundBackoffBase  time.Duration `yaml:"refund_backoff_base"`
	RefundBackoffCap   time.Duration `yaml:"refund_backoff_cap"`
	// Payouts.
	MinPayoutAmount float64 `yaml:"min_payout_amount"`
	// Instant withdrawals.
	WithdrawalFeeRate float64 `yaml:"withdrawal_fee_rate"`
	// Pending post-rental charges expire if not reviewed within this window.
	ChargeReviewWindow time.Duration `yaml:"charge_review_window"`
	// SweepLockTTL guards against overlapping sweeps across deployments.
	SweepLockTTL time.Duration `yaml:"sweep_lock_ttl"`
}

func loadSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SweepInterval:      getEnvAsDuration("SCHEDULER_SWEEP_INTERVAL", 5*time.Minute),
		RefundDueAfter:     getEnvAsDuration("REFUND_DUE_AFTER", 24*time.Hour),
		RefundMaxAttempts:  getEnvAsInt("REFUND_MAX_ATTEMPTS", 3),
		RefundBackoffBase:  getEnvAsDuration("REFUND_BACKOFF_BASE", 30*time.Minute),
		RefundBackoffCap:   getEnvAsDuration("REFUND_BACKOFF_CAP", 24*time.Hour),
		MinPayoutAmount:    getEnvAsFloat("MIN_PAYOUT_AMOUNT", 50),
		WithdrawalFeeRate:  getEnvAsFloat("WITHDRAWAL_FEE_RATE", 0.02),
		ChargeReviewWindow: getEnvAsDuration("CHARGE_REVIEW_WINDOW", 7*24*time.Hour),
		SweepLockTTL:       getEnvAsDuration("SCHEDULER_SWEEP_LOCK_TTL", 4*time.Minute),
	}
}
