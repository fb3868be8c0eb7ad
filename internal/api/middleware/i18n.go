package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"presence-gate/internal/core/processor"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

const (
	contextLocalizer = "localizer"
	contextLanguage  = "language"
)

// I18nConfig definiert die Konfiguration für die i18n-Middleware
type I18nConfig struct {
	DefaultLanguage string
}

// Translator hält das Bundle und den Sprach-Matcher
type Translator struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
}

// NewTranslator lädt die eingebetteten Übersetzungen
func NewTranslator(config I18nConfig) (*Translator, error) {
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	defaultTag, err := language.Parse(config.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", config.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if _, err := bundle.LoadMessageFileFS(localeFS, path.Join("locales", entry.Name())); err != nil {
			return nil, fmt.Errorf("failed to load locale %s: %w", entry.Name(), err)
		}
	}

	// Standardsprache zuerst, damit sie bei fehlender Übereinstimmung gewinnt
	tags := []language.Tag{defaultTag}
	for _, tag := range bundle.LanguageTags() {
		if tag != defaultTag {
			tags = append(tags, tag)
		}
	}

	return &Translator{bundle: bundle, matcher: language.NewMatcher(tags)}, nil
}

// Languages liefert die verfügbaren Sprachen
func (t *Translator) Languages() []string {
	var out []string
	for _, tag := range t.bundle.LanguageTags() {
		out = append(out, tag.String())
	}
	return out
}

// Localizer wählt die beste Sprache für ?lang= bzw. Accept-Language
func (t *Translator) Localizer(query, acceptLanguage string) (*i18n.Localizer, string) {
	tag, _ := language.MatchStrings(t.matcher, query, acceptLanguage)
	base, _ := tag.Base()
	lang := base.String()
	return i18n.NewLocalizer(t.bundle, lang), lang
}

// I18n erstellt eine Middleware für die Internationalisierung
func I18n(translator *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		loc, lang := translator.Localizer(c.Query("lang"), c.GetHeader("Accept-Language"))
		c.Set(contextLocalizer, loc)
		c.Set(contextLanguage, lang)
		c.Header("Content-Language", lang)
		c.Next()
	}
}

// Translate übersetzt id mit dem Localizer aus dem Kontext; fehlt die
// Übersetzung, wird die ID zurückgegeben
func Translate(c *gin.Context, id string, data map[string]interface{}) string {
	v, ok := c.Get(contextLocalizer)
	if !ok {
		return id
	}
	return localize(v.(*i18n.Localizer), id, data)
}

func localize(loc *i18n.Localizer, id string, data map[string]interface{}) string {
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		log.Debugf("Missing translation for %s: %v", id, err)
		return id
	}
	return msg
}

// StatusLabels sind die lokalisierten Texte der Statusanzeige
type StatusLabels struct {
	Face string `json:"face"`
	Pose string `json:"pose"`
	Gate string `json:"gate"`
}

// Labels erzeugt die Statustexte für den Kontext-Localizer
func Labels(c *gin.Context, s processor.Status) StatusLabels {
	v, ok := c.Get(contextLocalizer)
	if !ok {
		return StatusLabels{}
	}
	return BuildLabels(v.(*i18n.Localizer), s)
}

// BuildLabels erzeugt die Statustexte
func BuildLabels(loc *i18n.Localizer, s processor.Status) StatusLabels {
	var l StatusLabels

	switch {
	case s.Paused:
		l.Face = localize(loc, "status_paused", nil)
	case s.FaceStable:
		l.Face = localize(loc, "status_face_detected", map[string]interface{}{"Count": s.FacesCount})
	default:
		l.Face = localize(loc, "status_face_none", nil)
	}

	if s.PoseStable {
		l.Pose = localize(loc, "status_pose_detected", map[string]interface{}{"Count": s.PoseLandmarkCount})
	} else {
		l.Pose = localize(loc, "status_pose_none", nil)
	}

	switch lc := s.LastCommit; {
	case lc == nil:
		l.Gate = localize(loc, "gate_none", nil)
	default:
		sim := "-"
		if lc.Decision.Compared {
			sim = fmt.Sprintf("%.3f", lc.Decision.Similarity)
		}
		id := "gate_skip"
		if lc.Decision.Accepted {
			id = "gate_accept"
		}
		l.Gate = localize(loc, id, map[string]interface{}{"Similarity": sim})
	}
	return l
}
