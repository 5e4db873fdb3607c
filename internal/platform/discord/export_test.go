package discord

import "time"

const RoleTTL = roleTTL

func (d *Directory) SetClock(now func() time.Time) {
	d.now = now
}
