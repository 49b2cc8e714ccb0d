/*
Package cfddns keeps Cloudflare "A" records pointed at the public IP address of the host it runs on.

Usage will always start with [cfddns.New],
which returns a [Client] for an ordered list of zones.
New requires at least one [Zone] and a [Provider] implementation, usually registered with [UsingCloudflare].
Additional client configuration options are listed in the docs for New.

A run resolves the public IP, compares it to the last IP written to the [Store],
and only when it changed walks every address record of every zone,
updating the ones that point somewhere else.
The outcome is reported through an optional [Notifier],
and the new IP is persisted only when every attempted update succeeded
so that a partially failed run is retried by the next invocation.
*/
package cfddns
