// Package migrations embeds the versioned SQL applied by "booking-server migrate".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
