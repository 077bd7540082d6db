// Package rateshop fetches normalized shipping quotes from UPS.
//
// It assembles the pieces under this module:
//   - auth: OAuth client-credentials token cache with a five-minute refresh
//     buffer and a single shared exchange for concurrent callers
//   - transport: retrying HTTP client that classifies every failure
//   - carrier/ups: Rating API mapping and a one-shot token refresh on 401
//   - carriererr: the error kinds every component reports
//   - config and metrics: settings loading and Prometheus collectors
//
// Typical use:
//
//	cfg, err := config.Load("rateshop.yaml")
//	if err != nil {
//	    return err
//	}
//	svc, err := rateshop.New(*cfg)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	quotes, err := svc.GetRates(ctx, req)
package rateshop
