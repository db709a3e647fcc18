/*
Copyright 2026 Skylark Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package bigtable is a client for Cloud Bigtable, a wide-column NoSQL database.

# Setup and Credentials

Use NewClient or NewAdminClient to create a client that can be used to access
the data or admin APIs respectively. Both require credentials that have
permission to access the Cloud Bigtable API.

If your program is run on Google Compute Engine or Google App Engine, the
Application Default Credentials are sufficient. For other environments pass
option.WithCredentialsFile or build options from a descriptor in the auth
subpackage.

To use the client against an emulator, set the BIGTABLE_EMULATOR_HOST
environment variable to its address; the client will then dial the emulator
with no credentials.

# Reading

The principal data method is Table.ReadRows, which invokes a callback for each
row in a RowSet, optionally transformed by a Filter:

	tbl := client.Open("mytable")
	err := tbl.ReadRows(ctx, bigtable.PrefixRange("com.google."), func(r bigtable.Row) bool {
		// do something with r
		return true // keep going
	}, bigtable.RowFilter(bigtable.LatestNFilter(1)))

ReadRows transparently retries transient failures, resuming the scan after the
last row delivered so each row is seen exactly once. Table.ReadRow is a
convenience wrapper for reading a single row.

# Writing

This API exposes two distinct forms of writing to a table: a Mutation and a
ReadModifyWrite. The former expresses idempotent operations (set, delete) and
is applied with Table.Apply or in bulk with Table.ApplyBulk. The latter
expresses non-idempotent operations (append, increment) that operate on the
latest value of a cell and is applied with Table.ApplyReadModifyWrite.

# Retries

If a read or write operation encounters a transient error it will be retried
until a successful response, an unretryable error or the context deadline is
reached. Only idempotent mutations are retried: a Mutation that sets a cell
at ServerTime is applied at most once.
*/
package bigtable
