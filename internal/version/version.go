// Package version хранит сборочную информацию storefront,
// подставляемую через -ldflags при сборке релизного бинаря.
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// String сводит сборочную информацию в одну строку для логов
// и health-ответов.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
