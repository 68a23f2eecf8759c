/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import "regexp"

// Models trained mostly on MySQL keep emitting MySQL date functions even
// when told the target is SQLite. Rewriting the common ones is cheaper than
// rejecting the statement. Order matters: composite forms first.
var sqliteRewrites = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)YEAR\(CURDATE\(\)\)`), `strftime('%Y', 'now')`},
	{regexp.MustCompile(`(?i)CURDATE\(\)`), `date('now')`},
	{regexp.MustCompile(`(?i)CURTIME\(\)`), `time('now', 'localtime')`},
	{regexp.MustCompile(`(?i)NOW\(\)`), `datetime('now', 'localtime')`},
}

// NormalizeDialect rewrites dialect-specific functions in a validated
// statement for the target driver. Only sqlite needs rewriting today;
// other drivers get the statement back unchanged.
func NormalizeDialect(statement, driver string) string {
	if driver != "sqlite" {
		return statement
	}
	for _, rw := range sqliteRewrites {
		statement = rw.pattern.ReplaceAllString(statement, rw.replacement)
	}
	return statement
}
