package guidance

// Requirement is one advisory line of a block's coverage checklist.
type Requirement struct {
	Min   int
	Topic string
}

// Block is a category strategy. Strategy and Topic text may carry the
// placeholders {name}, {trigger}, {peak}, {loc}, {emo}, {motive} and {risk};
// Select fills them from the habit profile.
type Block struct {
	Title    string
	Strategy []string
	Coverage []Requirement
}

var blocks = map[Category]Block{
	CategoryNicotine: {
		Title: "Nicotine",
		Strategy: []string{
			"Frame {name} as a ritual and reward loop rather than a purely chemical one.",
			"Anchor work on the peak windows ({peak}) and the usual settings ({loc}).",
			"Add friction to storage, buying, access and the first use of the day.",
			"For pouches or other oral products, add tasks that keep the mouth and hands busy.",
			"At higher severity, restructure the environment harder and stretch urge delays longer.",
		},
		Coverage: []Requirement{
			{4, "moving where {name} is stored or how it is reached"},
			{4, "the first use of the day and the final use window"},
			{3, "steadying the body through withdrawal (sleep window, water, movement)"},
			{3, "using the emotional pattern ({emo}) to get ahead of urges"},
		},
	},
	CategoryPornography: {
		Title: "Pornography / sexual content",
		Strategy: []string{
			"Frame {name} as a loop of privacy, device access and mood.",
			"Set device rules and room layout, with extra care late at night and around {peak}.",
			"Put friction in front of high-risk places such as {loc}.",
			"Prefer stimulus control (lights, open door, blockers, charging spot) over willpower.",
			"Tie reflection to the emotional pattern ({emo}) and keep all wording free of shame.",
		},
		Coverage: []Requirement{
			{4, "changing how and where the device gets used"},
			{3, "heading off late-night and alone-time triggers"},
			{3, "redirecting a strong urge straight into a named alternative"},
			{2, "reviewing a slip calmly, as diagnosis only"},
		},
	},
	CategoryScreen: {
		Title: "Screen-based habit (social media, scrolling, gaming)",
		Strategy: []string{
			"Frame {name} as a loop of feeds, surroundings and boredom.",
			"Target the first and last half hour of the day, especially when peaks fall in {peak}.",
			"Rework notifications, home screen layout and which apps are installed at all.",
			"Use screen zones and screen windows in place of an unrealistic total ban.",
			"Match replacement activities to the motivation: {motive}.",
		},
		Coverage: []Requirement{
			{3, "notifications, app placement or removing apps"},
			{3, "the morning before the first check"},
			{3, "evenings and the run-up to sleep"},
			{3, "swapping a risky scrolling window for something that serves {motive}"},
		},
	},
	CategorySubstance: {
		Title: "Substance use (alcohol, cannabis)",
		Strategy: []string{
			"Frame {name} as a loop of context, company and mood regulation.",
			"Focus on social settings, routes and the usual times ({peak}).",
			"Name explicit no-use contexts and reroute around risky places like {loc}.",
			"Pair craving delays with a substitute ritual at the exact usual time.",
			"Connect the middle of the plan to the motivation ({motive}) and to identity.",
		},
		Coverage: []Requirement{
			{3, "changing routes or places that usually lead to use"},
			{3, "setting no-use rules for specific contexts"},
			{3, "the high-risk situations described as {risk}"},
			{2, "rehearsing the response to an invitation or a stress spike"},
		},
	},
	CategoryFood: {
		Title: "Food / sugar / overeating",
		Strategy: []string{
			"Frame {name} as a loop of kitchen, shopping and emotional comfort.",
			"Change how visible and how close trigger foods are, especially around {loc}.",
			"Time tasks to the emotional states ({emo}) and hours ({peak}) that drive eating.",
			"Adjust the shopping list and preparation so impulsive access gets harder.",
			"Prefer plate size, portion and layout changes over forbidden-food rules.",
		},
		Coverage: []Requirement{
			{3, "shopping for or preparing alternatives ahead of time"},
			{3, "moving trigger foods out of sight and reach"},
			{3, "an emotional check-in before eating in risky moments"},
			{2, "evenings or the risk situations described as {risk}"},
		},
	},
	CategorySpending: {
		Title: "Spending / gambling",
		Strategy: []string{
			"Frame {name} as a loop of thrill, access and impulse.",
			"Go after financial access directly: cards, apps, cash, sites, groups.",
			"Lean on pre-commitment, enforced delays and keeping consequences visible.",
			"Tie tasks to the risky times and contexts ({peak}, {risk}).",
			"Offer lower-risk sources of excitement or reward.",
		},
		Coverage: []Requirement{
			{3, "limiting or delaying access to money"},
			{3, "the 10-20 minutes before a purchase or bet"},
			{2, "analysing a past episode factually"},
			{2, "reinforcing the motivation: {motive}"},
		},
	},
	CategoryProcrastination: {
		Title: "Procrastination",
		Strategy: []string{
			"Frame {name} as avoidance of a particular kind of work or feeling.",
			"Aim tasks at the exact work being avoided, such as studying or deep work.",
			"Use tiny, concrete starting actions in place of vague discipline.",
			"Build place and time-box rules around the real avoidance windows ({peak}).",
			"Build the identity of someone who meets {trigger} with short focused bursts.",
		},
		Coverage: []Requirement{
			{5, "a tiny concrete first action (open the file, write one sentence)"},
			{3, "cutting distractions in the main work spot ({loc})"},
			{3, "handling the emotional pattern ({emo}) before work starts"},
			{2, "what to do after a bad day without dropping the plan"},
		},
	},
	CategoryOther: {
		Title: "Other or unclear",
		Strategy: []string{
			"The category is imprecise, so build on the user's own described patterns.",
			"Design around the trigger ({trigger}), peak times ({peak}) and places ({loc}).",
			"Use the emotional pattern ({emo}) to step in before urges peak.",
			"Use the standard toolkit: friction, replacement, identity, slip recovery, environment design.",
		},
		Coverage: []Requirement{
			{5, "the described triggers, times or places by name"},
			{3, "delaying an urge and doing a named replacement"},
			{2, "linking the day's action to the motivation: {motive}"},
		},
	},
}

// BlockFor returns the raw (unfilled) block for c, falling back to
// CategoryOther.
func BlockFor(c Category) Block {
	if b, ok := blocks[c]; ok {
		return b
	}
	return blocks[CategoryOther]
}
