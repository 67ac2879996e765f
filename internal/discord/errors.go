package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	apperrors "github.com/charlesng35/rolewarden/pkg/errors"
)

// classifyAPIError maps a discordgo REST failure onto the application error
// taxonomy. Anything that is not a recognised terminal condition is treated
// as transient so callers retry on the next cycle.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil {
			switch rest.Message.Code {
			case discordgo.ErrCodeUnknownGuild:
				return apperrors.ErrScopeNotFound.WithInternal(err)
			case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
				return apperrors.ErrSubjectNotFound.WithInternal(err)
			case discordgo.ErrCodeUnknownRole:
				return apperrors.ErrGrantNotFound.WithInternal(err)
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return apperrors.ErrInsufficientPrivilege.WithInternal(err)
			}
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
			return apperrors.ErrInsufficientPrivilege.WithInternal(err)
		}
	}

	return apperrors.ErrRemoteUnavailable.WithInternal(err)
}
