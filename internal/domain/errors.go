// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrNotFound = errors.New("user not found")
var ErrInvalidEmail = errors.New("invalid email address")
var ErrMissingPassword = errors.New("password is required")
var ErrEmailTaken = errors.New("email address already in use")
