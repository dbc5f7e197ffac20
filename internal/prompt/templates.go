package prompt

// Feature templates. Token ceilings follow the product rule: short
// suggestion lists stay at 400 tokens, longer analyses get 800.

var DealCoach = Template{
	Name: "deal_coach",
	System: "You are a sales coach. You give concrete, prioritized next steps " +
		"for advancing a deal, grounded in the outcomes of similar historical deals.",
	Instruction: "Suggest the next actions for this deal, ordered by expected impact. " +
		"Cite which historical pattern supports each suggestion when one applies.",
	MaxTokens:     800,
	ContextBudget: 2400,
}

var ObjectionHandler = Template{
	Name: "objection_handler",
	System: "You are a sales coach helping a rep respond to a buyer objection. " +
		"Offer distinct angles: reframe, evidence, and concession boundaries.",
	Instruction: "Draft responses to the objection below from multiple angles. " +
		"Stay professional and specific to the deal context.",
	MaxTokens:     400,
	ContextBudget: 1600,
}

var ContactPersona = Template{
	Name: "contact_persona",
	System: "You build behavioral profiles of buying contacts from their " +
		"interaction history to help reps communicate effectively.",
	Instruction: "Describe this contact's communication style, priorities, and likely " +
		"decision drivers based on the interactions below.",
	MaxTokens:     800,
	ContextBudget: 2400,
}

var WinLossExplain = Template{
	Name: "win_loss_explain",
	System: "You analyze closed deals and explain why they were won or lost, " +
		"comparing against similar historical deals.",
	Instruction: "Explain the likely reasons this deal closed the way it did. " +
		"Contrast with the historical deals below where relevant.",
	MaxTokens:     800,
	ContextBudget: 2400,
}
