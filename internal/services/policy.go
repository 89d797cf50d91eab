package services

import (
	"time"

	"streak-backend/internal/config"
)

// Policy holds the economy and calendar rules shared by the services
type Policy struct {
	Location             *time.Location
	Milestones           Milestones
	PointsPerDay         int64
	MilestoneBonus       int64
	FreezeCostPerDay     int64
	FreezeMaxHorizonDays int
	AllowOverdraft       bool
}

// PolicyFromConfig builds a Policy from the streak section of the config
func PolicyFromConfig(c config.StreakConfig) Policy {
	p := Policy{
		Location:             c.Location(),
		Milestones:           Milestones(c.Milestones),
		PointsPerDay:         c.PointsPerDay,
		MilestoneBonus:       c.MilestoneBonus,
		FreezeCostPerDay:     c.FreezeCostPerDay,
		FreezeMaxHorizonDays: c.FreezeMaxHorizonDays,
		AllowOverdraft:       c.AllowOverdraft,
	}
	if len(p.Milestones) == 0 {
		p.Milestones = DefaultMilestones
	}
	return p
}

// DefaultPolicy returns the policy of the default configuration
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Default().Streak)
}
