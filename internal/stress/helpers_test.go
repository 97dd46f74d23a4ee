package stress

import "time"

const testDuration = 45 * time.Minute

func testStart() time.Time {
	return time.Date(2021, 6, 1, 13, 30, 0, 0, time.UTC)
}
