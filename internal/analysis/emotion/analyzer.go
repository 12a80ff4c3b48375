// Package emotion picks a speaking style for a synthesized reply from the
// words of the exchange. It is a keyword heuristic and never calls a model.
package emotion

import (
	"strings"
)

// Label is an emotion accepted by the synthesis backend.
type Label string

const (
	Neutral  Label = "neutral"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Angry    Label = "angry"
	Excited  Label = "excited"
	Tender   Label = "tender"
	Comfort  Label = "comfort"
	Magnetic Label = "magnetic"
)

const (
	minScale     float32 = 1
	maxScale     float32 = 5
	neutralScale float32 = 3
	keywordHit           = 3
)

// Decision is the chosen emotion and its intensity on a 1..5 scale.
type Decision struct {
	Emotion Label
	Scale   float32
	Score   int
}

// Expressive reports whether the decision is worth sending to the
// synthesizer at all.
func (d Decision) Expressive() bool {
	return d.Emotion != Neutral && d.Score > 0
}

// Keywords are matched case-insensitively as substrings. Both English and
// Chinese are listed because the recognizer serves both.
var keywords = map[Label][]string{
	Happy: {
		"amazing", "awesome", "great", "thanks", "thank you", "love", "glad", "lol", "haha",
		"开心", "高兴", "快乐", "太好了", "太棒了", "喜欢", "满意", "哈哈",
	},
	Sad: {
		"unhappy", "sad", "cry", "depressed", "tragedy", "upset", "hurt", "sorrow", "lonely", "miss",
		"难过", "伤心", "失落", "沮丧", "悲伤", "痛苦", "孤单", "失望", "委屈",
	},
	Angry: {
		"angry", "furious", "rage", "mad", "annoyed", "pissed", "outrage", "fed up",
		"生气", "愤怒", "火大", "气死", "受够了", "抓狂",
	},
	Excited: {
		"can't wait", "cannot wait", "superb", "unbelievable", "hype", "wow", "incredible",
		"期待", "激动", "太酷了", "惊喜", "兴奋", "热血",
	},
	Tender: {
		"soft", "gentle", "calm", "softly", "quietly", "relax", "slowly",
		"温柔", "轻声", "慢慢", "平静", "放松", "轻轻",
	},
	Comfort: {
		"don't worry", "it's okay", "i understand", "i'm here", "we are here", "for you",
		"take it easy", "breathe", "you're safe", "hug",
		"别担心", "没事", "我懂", "陪着", "抱抱", "安心", "不要怕",
	},
	Magnetic: {
		"focus", "critical", "serious", "important", "must", "remember", "careful",
		"认真", "严肃", "重要", "必须", "务必", "记住",
	},
}

// labels fixes the tie-break order so the same text always yields the same
// decision.
var labels = []Label{Excited, Happy, Comfort, Tender, Sad, Angry, Magnetic}

// Analyze infers the emotion a spoken reply should carry. The reply's own
// tone wins; a flat reply borrows a matching response to the user's tone.
func Analyze(userText, replyText string) Decision {
	best := score(replyText)
	if best.Score == 0 {
		if user := score(userText); user.Score > 0 {
			best = respondTo(user)
		}
	}
	if best.Score == 0 {
		return Decision{Emotion: Neutral, Scale: neutralScale}
	}
	best.Scale = scaleFor(best)
	return best
}

func scaleFor(d Decision) float32 {
	scale := 2 + float32(d.Score)/4
	switch d.Emotion {
	case Excited:
		scale++
	case Magnetic:
		scale = min(scale, 4)
	case Comfort, Tender:
		scale = min(scale, 3.5)
	}
	return max(minScale, min(scale, maxScale))
}

func score(text string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int, len(labels))
	for label, words := range keywords {
		for _, word := range words {
			if strings.Contains(normalized, word) {
				scores[label] += keywordHit
			}
		}
	}

	bangs := strings.Count(text, "!") + strings.Count(text, "！")
	if bangs > 0 {
		scores[Excited] += bangs * 3
		if bangs == 1 {
			scores[Happy] += 2
		}
	}

	out := Decision{Emotion: Neutral}
	for _, label := range labels {
		if scores[label] > out.Score {
			out = Decision{Emotion: label, Score: scores[label]}
		}
	}
	return out
}

// respondTo maps the user's mood to the mood of a fitting answer.
func respondTo(user Decision) Decision {
	switch user.Emotion {
	case Sad:
		user.Emotion = Comfort
	case Angry:
		user.Emotion = Magnetic
	case Comfort:
		user.Emotion = Tender
	}
	return user
}
