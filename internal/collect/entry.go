// Package collect scans directory trees into the item lists bulk jobs run
// over. Scanners and filters are channel operators chained in a pipeline and
// stopped through the context.
package collect

// Entry is one file found by a scanner. Entries that failed to scan carry
// Err and pass through every filter untouched.
type Entry struct {
	// Location is how the install resolver addresses the file: a host path
	// or an archive path such as "sd:/cias/game.cia".
	Location string
	RelPath  string
	Size     int64
	Err      error
}

// Rules prune a scan. Top dir rules only apply to the first level.
type Rules struct {
	IncludeTopDirs []string
	ExcludeTopDirs []string
	SkipDirs       []string
	// SkipDirItems skips any directory containing one of these names.
	SkipDirItems []string
}

type ruleSet struct {
	includeTopDirs map[string]bool
	excludeTopDirs map[string]bool
	skipDirs       map[string]bool
	skipDirItems   []string
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func (r Rules) compile() *ruleSet {
	return &ruleSet{
		includeTopDirs: toSet(r.IncludeTopDirs),
		excludeTopDirs: toSet(r.ExcludeTopDirs),
		skipDirs:       toSet(r.SkipDirs),
		skipDirItems:   r.SkipDirItems,
	}
}

// skipDir decides whether the directory name at level is descended into.
func (rs *ruleSet) skipDir(name string, level int) bool {
	skip := false
	if level == 0 {
		if len(rs.includeTopDirs) > 0 {
			skip = !rs.includeTopDirs[name]
		}
		if rs.excludeTopDirs[name] {
			skip = true
		}
	}
	return skip || rs.skipDirs[name]
}
