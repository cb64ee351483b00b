package chat

import "fmt"

// Instruction appended to a question so the reply comes back in Cantonese.
const cantoneseInstruction = "\n\n請用廣東話回答，必要時可混用英語。"

const (
	replyMaxTokens      = 600
	correctionMaxTokens = 1200
	correctionPenalty   = 1.1
	compareMaxTokens    = 800
)

const correctionSystem = "You are an expert Hong Kong Cantonese editor. Refine Cantonese transcriptions: " +
	"correct phonetic and homophone errors, keep written Cantonese in Traditional Chinese, " +
	"collapse repeated hallucinated phrases into one occurrence, and break the text into " +
	"paragraphs of no more than 3-4 sentences."

const correctionUserFmt = "Refine the following Cantonese transcription. " +
	"Return ONLY the final refined script, no explanations.\n\nTRANSCRIPT:\n%s"

const compareSystem = "You compare a Cantonese transcript against its reference script " +
	"and list the differences in wording, names and numbers."

const compareUserFmt = "REFERENCE SCRIPT:\n%s\n\nTRANSCRIPT:\n%s\n\n" +
	"List every difference, then give an overall accuracy estimate from 0 to 100."

// AnswerPrompt asks for a Cantonese reply to question.
func AnswerPrompt(system, question string) Prompt {
	return Prompt{
		System:      system,
		User:        question + cantoneseInstruction,
		Temperature: DefaultTemperature,
		MaxTokens:   replyMaxTokens,
	}
}

// CorrectionPrompt asks the model to fix a raw transcript.
func CorrectionPrompt(transcript string) Prompt {
	return Prompt{
		System:            correctionSystem,
		User:              fmt.Sprintf(correctionUserFmt, transcript),
		Temperature:       DefaultTemperature,
		MaxTokens:         correctionMaxTokens,
		RepetitionPenalty: correctionPenalty,
	}
}

// ComparePrompt asks the model to diff a transcript against its true script.
func ComparePrompt(reference, transcript string) Prompt {
	return Prompt{
		System:      compareSystem,
		User:        fmt.Sprintf(compareUserFmt, reference, transcript),
		Temperature: DefaultTemperature,
		MaxTokens:   compareMaxTokens,
	}
}
