package translate

import "fmt"

// SystemPrompt returns the translation system prompt for the request's
// preset, with custom user instructions appended for the "custom" preset.
func SystemPrompt(opts Options) string {
	base := fmt.Sprintf(
		"You are translating subtitles from %s to %s. "+
			"Write translations that read naturally at subtitle pace: short, idiomatic, and faithful "+
			"to what is said rather than word-for-word. Never add commentary.",
		langName(opts.SourceLang), langName(opts.TargetLang),
	)

	switch opts.Preset {
	case "anime":
		base += "\n\nThis is anime dialogue:\n" +
			"- keep the speech casual and in character\n" +
			"- carry honorifics (-san, -kun, -chan, -senpai, -sensei) over where the target language can hold them\n" +
			"- keep character names consistent across lines\n" +
			"- render interjections (なるほど, すごい, やれやれ) as natural equivalents\n" +
			"- follow the emotional register of each line, comedic or serious"

	case "movie":
		base += "\n\nThis is film or drama dialogue:\n" +
			"- match each speaker's register, formal or informal\n" +
			"- replace idioms and cultural references with equivalents, not literal renderings\n" +
			"- keep every line short enough to read while its cue is on screen"

	case "documentary":
		base += "\n\nThis is documentary narration:\n" +
			"- use precise, formal language\n" +
			"- translate technical terms accurately and keep proper nouns and place names intact\n" +
			"- keep numbers, dates and measurements exact"
	}

	if opts.Preset == "custom" && opts.CustomPrompt != "" {
		base += "\n\nUser instructions: " + opts.CustomPrompt
	}
	return base
}

var languageNames = map[string]string{
	"ko": "Korean", "en": "English", "ja": "Japanese", "zh": "Chinese",
	"es": "Spanish", "fr": "French", "de": "German", "pt": "Portuguese",
	"it": "Italian", "ru": "Russian", "ar": "Arabic", "hi": "Hindi",
	"th": "Thai", "vi": "Vietnamese", "id": "Indonesian",
}

// langName spells out an ISO 639-1 code for the prompt. Unknown codes pass
// through unchanged.
func langName(code string) string {
	if code == "" || code == "auto" {
		return "the auto-detected language"
	}
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
