// Package auth manages the OAuth bearer token used for carrier API calls.
//
// A Manager obtains tokens with the client-credentials grant, caches the
// current one, treats it as expired RefreshBuffer before its real expiry,
// and collapses concurrent acquisitions into one exchange:
//
//	tokens, err := auth.NewManager(auth.Config{
//	    ClientID:     id,
//	    ClientSecret: secret,
//	    TokenURL:     "https://wwwcie.ups.com/security/v1/oauth/token",
//	}, transport.New(transport.WithTimeout(10*time.Second)))
//	if err != nil {
//	    return err
//	}
//	token, err := tokens.GetToken(ctx)
//
// Every failure is a *carriererr.Error of kind KindAuth.
package auth
