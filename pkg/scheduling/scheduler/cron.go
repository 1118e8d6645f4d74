package scheduler

import (
	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/goflux/pkg/common/errors"
)

// cronParser accepts the standard five fields, an optional leading seconds
// field, and descriptors such as "@hourly" or "@every 5s".
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron parses a cron expression into a schedule.
// Examples:
//
//	"0 */2 * * *"     - every 2 hours
//	"30 14 * * 1-5"   - 2:30 PM on weekdays
//	"*/10 * * * * *"  - every 10 seconds
//	"@daily"          - every day at midnight
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, gferrors.NewValidationError("scheduler", "cron", expr, err.Error())
	}
	return sched, nil
}
