package model

import "errors"

var (
	errInvalidServerTarget          = errors.New("server must be either local or have both hostname and ssh username, not both or neither")
	errCompositeHasCommandTemplate  = errors.New("composite job template must not set command_template_id")
	errCompositeNoSteps             = errors.New("composite job template requires at least one step")
	errSimpleMissingCommandTemplate = errors.New("simple job template requires command_template_id")
	errSimpleHasSteps               = errors.New("simple job template must not have steps")
)
