package model

import "regexp"

// Commit is one entry in a branch's first-parent history. SecondaryParents
// holds the hashes of any non-first parents (i.e. merge parents) reported
// by `git log --first-parent --format=%H:%P:%s`; MergedBranches is filled
// in only by Branch.Commits, once the subject line has been matched
// against the merge-commit templates and resolved to branch handles.
type Commit struct {
	Hash             string
	Subject          string
	SecondaryParents []string
	MergedBranches   []*Branch
}

// RefLogEntry is one line of `git log -g <ref>@{now}`: a reflog timestamp
// paired with the hash it pointed at.
type RefLogEntry struct {
	Timestamp int64
	Hash      string
}

// mergePattern recognizes the two merge-commit subject templates: a
// two-way merge ("Merge branch 'X' into Y") and an octopus merge
// ("Merge branches 'A', 'B', ... and 'K' into Y").
var mergePattern = regexp.MustCompile(`^Merge branch(?: '([^']+)'|es ('[^']+'(?:, '[^']+')*) and '([^']+)')`)

// mergedBranchNames returns the branch names referenced in a merge
// commit's subject line, or nil if subject does not match either
// template.
func mergedBranchNames(subject string) []string {
	m := mergePattern.FindStringSubmatch(subject)
	if m == nil {
		return nil
	}
	var names []string
	if m[1] != "" {
		names = append(names, m[1])
	}
	if m[3] != "" {
		names = append(names, m[3])
	}
	if m[2] != "" {
		for _, quoted := range splitQuotedList(m[2]) {
			names = append(names, quoted)
		}
	}
	return names
}

// splitQuotedList splits "'A', 'B', 'C'" into ["A", "B", "C"].
func splitQuotedList(s string) []string {
	var out []string
	for _, part := range regexp.MustCompile(`,\s*`).Split(s, -1) {
		if len(part) >= 2 && part[0] == '\'' && part[len(part)-1] == '\'' {
			out = append(out, part[1:len(part)-1])
		}
	}
	return out
}
