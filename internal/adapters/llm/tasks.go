package llm

import "github.com/agentrace/arena/internal/domain/model"

// defaultTasks is the built-in pool of race tasks used while AI generation
// is disabled. Edit or extend to suit new challenges.
var defaultTasks = []model.RaceTask{
	{
		Title:   "Wikipedia Spider-Man to Captain America Navigation",
		Summary: "Navigate from Spider-Man's Wikipedia page to Captain America's Wikipedia page and extract specific information.",
		HumanInstructions: "Start at the Wikipedia article for Spider-Man (https://en.wikipedia.org/wiki/Spider-Man). " +
			"Navigate to the Captain America Wikipedia article by clicking links within Wikipedia pages. " +
			"Once there, find and provide Captain America's real name.",
		AgentInstructions: "Navigate to https://en.wikipedia.org/wiki/Spider-Man, then follow internal Wikipedia links " +
			"to reach the Captain America article. Extract and return Captain America's real name from the page.",
		TaskType:                  model.TaskTypeTextEntry,
		SuccessCriteria:           "Must provide Captain America's real name (Steve Rogers) found on the Wikipedia page.",
		ExpectedOutputDescription: "Captain America's real name.",
		EvaluationGuidelines: []string{
			"Verify the answer is 'Steve Rogers' or 'Steven Rogers'.",
			"Confirm navigation was done through Wikipedia links (not direct URL entry).",
			"Information must be extracted from the Captain America Wikipedia article.",
		},
	},
	{
		Title:   "Hacker News Front Page Top Story",
		Summary: "Both participants must capture the title of the current top story on Hacker News.",
		HumanInstructions: "Go to https://news.ycombinator.com and copy the title of the story currently " +
			"ranked #1 on the front page.",
		AgentInstructions: "Navigate to https://news.ycombinator.com and extract the title text of the " +
			"first (rank 1) story on the front page.",
		TaskType:                  model.TaskTypeTextEntry,
		SuccessCriteria:           "Captures the exact title of the #1 front-page story at race time.",
		ExpectedOutputDescription: "A short string containing the story title.",
		EvaluationGuidelines: []string{
			"Titles may differ slightly if the front page changed mid-race; accept either ranking snapshot.",
			"Reward faster completion when accuracy ties.",
		},
	},
}
