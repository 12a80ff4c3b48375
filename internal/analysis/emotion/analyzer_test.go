package emotion

import "testing"

func TestAnalyzeSadUserGetsComfort(t *testing.T) {
	decision := Analyze("I feel so sad today", "Let's get through it together.")
	if decision.Emotion != Comfort {
		t.Fatalf("expected comfort emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 1 || decision.Scale > 3.5 {
		t.Fatalf("emotion scale out of range: %f", decision.Scale)
	}
}

func TestAnalyzeChineseSadUserGetsComfort(t *testing.T) {
	decision := Analyze("我今天很难过", "我在这里")
	if decision.Emotion != Comfort {
		t.Fatalf("expected comfort emotion, got %s", decision.Emotion)
	}
}

func TestAnalyzeExcitedReply(t *testing.T) {
	decision := Analyze("we shipped it", "Wow!!! That is incredible news!")
	if decision.Emotion != Excited {
		t.Fatalf("expected excited emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 3 {
		t.Fatalf("expected boosted scale for excitement, got %f", decision.Scale)
	}
}

func TestAnalyzeReplyToneWins(t *testing.T) {
	decision := Analyze("I am so angry", "Thanks for telling me, I love that you shared it")
	if decision.Emotion != Happy {
		t.Fatalf("expected happy emotion from reply, got %s", decision.Emotion)
	}
}

func TestAnalyzeAngryUserGetsMagnetic(t *testing.T) {
	decision := Analyze("I'm furious about this", "Here is what happened.")
	if decision.Emotion != Magnetic {
		t.Fatalf("expected magnetic emotion, got %s", decision.Emotion)
	}
	if decision.Scale > 4 {
		t.Fatalf("magnetic scale must be capped at 4, got %f", decision.Scale)
	}
}

func TestAnalyzeNeutral(t *testing.T) {
	decision := Analyze("what time is it", "It is noon.")
	if decision.Emotion != Neutral || decision.Expressive() {
		t.Fatalf("expected neutral decision, got %+v", decision)
	}
	if decision.Scale != neutralScale {
		t.Fatalf("neutral scale = %f", decision.Scale)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	first := Analyze("", "great, calm and important")
	for i := 0; i < 20; i++ {
		if got := Analyze("", "great, calm and important"); got != first {
			t.Fatalf("decision changed between runs: %+v vs %+v", first, got)
		}
	}
}
