package flow

import (
	"encoding/base64"
	"fmt"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/session"
)

// View is everything the page template needs.
type View struct {
	Title             string
	Layout            config.Layout
	CapabilityMessage string
	// CapabilityLevel is warning for a missing runtime, error for a failed load
	CapabilityLevel session.Level
	Notices         []session.Notice

	InputURL string
	// ResultURL points at the session result slot (persistent layout)
	ResultURL string
	// ResultDataURI carries a result inline (ephemeral layout)
	ResultDataURI string
	State         session.State
}

// HasResult reports whether the result column has an image.
func (v View) HasResult() bool {
	return v.ResultURL != "" || v.ResultDataURI != ""
}

// Persistent reports whether the persistent layout is active.
func (v View) Persistent() bool {
	return v.Layout != config.LayoutEphemeral
}

// BuildView assembles the page for a session. outcome is the detect action
// handled in the same request, nil on a plain page load. Queued session
// notices are consumed.
func (f *Flow) BuildView(sess *session.Session, title string, layout config.Layout, outcome *Outcome) View {
	v := View{
		Title:             title,
		Layout:            layout,
		CapabilityMessage: f.capability.StartupMessage(),
		CapabilityLevel:   capabilityLevel(f.capability.Kind()),
		State:             sess.State(),
	}

	v.Notices = append(v.Notices, sess.PopNotices()...)
	if outcome != nil {
		v.Notices = append(v.Notices, outcome.Notices...)
	}

	if sess.Upload() != nil {
		v.InputURL = fmt.Sprintf("/images/input.png?v=%d", sess.UploadedAt().UnixNano())
	}

	switch layout {
	case config.LayoutEphemeral:
		if outcome != nil && outcome.Result != nil {
			v.ResultDataURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(outcome.Result.PNG)
		}
	default:
		if slot := sess.Result(); slot != nil {
			v.ResultURL = fmt.Sprintf("/images/result.png?v=%d", slot.CreatedAt.UnixNano())
		}
	}

	return v
}

func capabilityLevel(kind detector.ReasonKind) session.Level {
	if kind == detector.ReasonDependencyMissing {
		return session.LevelWarning
	}
	return session.LevelError
}
