package usecase

import (
	"sort"

	emaildomain "mailpilot-backend/internal/email/domain"
)

// labelChangesForCategory returns the label adjustments that make a mail
// item's labels consistent with the given category. For custom categories the
// caller passes the matching Category row (nil for the built-in ones).
func labelChangesForCategory(category string, custom *emaildomain.Category) (add, remove []string) {
	switch category {
	case emaildomain.CategoryTrashed:
		return []string{emaildomain.LabelTrash}, []string{emaildomain.LabelInbox}
	case emaildomain.CategoryArchived:
		return nil, []string{emaildomain.LabelInbox, emaildomain.LabelTrash}
	}

	add = []string{emaildomain.LabelInbox}
	remove = []string{emaildomain.LabelTrash}
	if custom != nil {
		if custom.GmailLabelID != "" && custom.GmailLabelID != emaildomain.LabelTrash {
			add = append(add, custom.GmailLabelID)
		}
		for _, id := range custom.RemoveLabelIDs {
			remove = append(remove, id)
		}
	}
	return add, remove
}

// applyLabelChange computes the label set after adding and removing the given
// labels. Labels present in both lists are kept. Reports whether the set
// actually changed.
func applyLabelChange(labels emaildomain.StringArray, add, remove []string) (emaildomain.StringArray, bool) {
	addSet := make(map[string]bool, len(add))
	for _, l := range add {
		addSet[l] = true
	}
	removeSet := make(map[string]bool, len(remove))
	for _, l := range remove {
		if !addSet[l] {
			removeSet[l] = true
		}
	}

	have := make(map[string]bool, len(labels))
	result := make(emaildomain.StringArray, 0, len(labels)+len(add))
	changed := false
	for _, l := range labels {
		have[l] = true
		if removeSet[l] {
			changed = true
			continue
		}
		result = append(result, l)
	}
	for _, l := range add {
		if !have[l] {
			have[l] = true
			result = append(result, l)
			changed = true
		}
	}
	return result, changed
}

// enforceCategory rewrites the item's labels and category field so they agree
// with the target category. It is idempotent: enforcing an already consistent
// item reports no change.
func enforceCategory(item *emaildomain.MailItem, category string, custom *emaildomain.Category) bool {
	add, remove := labelChangesForCategory(category, custom)
	labels, changed := applyLabelChange(item.Labels, add, remove)
	if changed {
		item.Labels = labels
	}
	if item.Category != category {
		item.Category = category
		changed = true
	}
	return changed
}

// sortedLabels returns a copy of the given label set in a stable order.
func sortedLabels(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
