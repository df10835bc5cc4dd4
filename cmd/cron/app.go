package main

import (
	"fulfillment-service/internal/scheduler"
)

// CronApp Cron 应用结构
type CronApp struct {
	jobs *scheduler.Jobs
}
