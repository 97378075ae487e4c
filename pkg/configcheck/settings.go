package configcheck

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Settings holds the core operational settings gating startup.
type Settings struct {
	// StorePath is the filesystem path of the state store.
	StorePath string `validate:"required"`

	// LogLevel sets logging verbosity.
	LogLevel string `validate:"omitempty,oneof=trace debug info warn error fatal"`

	// LogFormat selects the log output format.
	LogFormat string `validate:"omitempty,oneof=console json"`

	// MaxAttempts bounds retry loops for unreliable operations.
	MaxAttempts int `validate:"min=1"`

	// BusyTimeoutMS bounds how long store handles wait on a lock.
	BusyTimeoutMS int `validate:"min=0"`
}

var settingsValidator = validator.New()

// CheckSettings validates the settings struct, aggregating every tag
// violation into a report keyed by "Settings.<field>".
func CheckSettings(s *Settings) Report {
	var report Report

	err := settingsValidator.Struct(s)
	if err == nil {
		return report
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		report.Add("Settings", err.Error())
		return report
	}

	for _, fe := range verrs {
		report.Add("Settings."+fe.Field(), tagMessage(fe))
	}

	return report
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}
