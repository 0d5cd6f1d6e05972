// Copyright (c) 2025 The go-passkey Authors
//
// This file is part of go-passkey.
//
// Licensed under the MIT License. See the LICENSE file for details.

package token

import "errors"

var (
	// ErrTokenExpired indicates the token's expiry time has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the token failed signature or structural
	// validation for any reason other than expiry.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrWrongTokenType indicates a token of the wrong type was presented,
	// such as an access token where a refresh token is required.
	ErrWrongTokenType = errors.New("wrong token type")
)
