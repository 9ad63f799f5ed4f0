package domain

// IssueCategory is one entry of the fixed issue catalog: a label the
// reporter picks and the static first-tier checklist shown for it.
type IssueCategory struct {
	Key           string
	Title         string
	BasicGuidance string
}

// IssueCatalog is the fixed set of reportable issue categories.
// Process-wide immutable configuration.
var IssueCatalog = []IssueCategory{
	{
		Key:   "able_erp",
		Title: "Able ERP",
		BasicGuidance: "If you cannot reach Able ERP, first check that your VPN is " +
			"connected and the internet is working. Clear the browser cache and sign in again.",
	},
	{
		Key:   "network",
		Title: "Network",
		BasicGuidance: "Restart your network cable connection or Wi-Fi device and check " +
			"whether another device can reach the network.",
	},
	{
		Key:   "software",
		Title: "Software",
		BasicGuidance: "Verify the application license is valid and the latest update is " +
			"installed, then restart the application.",
	},
	{
		Key:   "hardware",
		Title: "Hardware",
		BasicGuidance: "Check the computer's power, cables and connections. Try the device " +
			"on another machine if possible.",
	},
	{
		Key:   "printer",
		Title: "Printer",
		BasicGuidance: "Make sure the printer is powered on with paper and toner available, " +
			"then reload the driver.",
	},
	{
		Key:   "email",
		Title: "Email",
		BasicGuidance: "Check the mail account settings and your network connection, then " +
			"try signing in through webmail.",
	},
}

// FindIssueCategory resolves a catalog entry by its exact title.
func FindIssueCategory(title string) (IssueCategory, bool) {
	for _, cat := range IssueCatalog {
		if cat.Title == title {
			return cat, true
		}
	}
	return IssueCategory{}, false
}

// IssueTitles returns catalog titles in display order.
func IssueTitles() []string {
	titles := make([]string, len(IssueCatalog))
	for i, cat := range IssueCatalog {
		titles[i] = cat.Title
	}
	return titles
}
