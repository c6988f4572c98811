// Package domain models seismic alerts for chat communities ("tenants").
//
// # Data Source
//
// Events come from the EMSC seismic portal FDSN event service
// (https://www.seismicportal.eu/fdsnws/event/1/query?format=json), one feed URL
// per tenant. Each GeoJSON feature carries a globally unique "id" (the EMSC
// unid) and properties: "time" (ISO-8601 UTC), "mag", "lat", "lon" and "auth"
// (the reporting agency, e.g. "EMSC", "KOERI", "AFAD").
//
// # Pipeline
//
// Every cycle a tenant's feed is fetched, reduced by [SelectEvents] and each
// surviving event is located with [ResolveLocation], rendered with
// [BuildAlert] and dispatched. The delivery ledger (see [DeliveryRecord])
// makes delivery idempotent: once a source id is recorded for a tenant it is
// never reconsidered, even when the channel send failed.
//
// # Matching
//
// Subscribers register interest in city names. Names are stored in
// [NormalizeText] form, which folds Turkish letters (İ, ı, Ş, Ğ, Ü, Ö, Ç) to
// ASCII so "İstanbul", "ISTANBUL" and "istanbul" all match. Reverse geocoding
// yields up to three granularities (locality, city, principal subdivision);
// a subscriber matching any of them is notified.
package domain
