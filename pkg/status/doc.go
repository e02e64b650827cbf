// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package status keeps the journal of settled mutations and renders it.

	         +---------------+
	         |  Coordinator  |
	         +-------+-------+
	                 | Settled
	         +-------+-------+
	         |    Journal    |
	         +-------+-------+
	                 |
	      +----------+----------+
	      |                     |
	+-----+-----+         +-----+-----+
	|  Entries  |         |  Render   |
	| (history) |         |  (pterm)  |
	+-----------+         +-----------+

🎯 Purpose:
  - Records every settlement a coordinator reports
  - Counts outcomes per kind and op
  - Reports script progress
  - Renders the journal as a table for the cli

🔍 Example:

	journal := status.NewJournal(logger)
	coordinator := mutation.New(mutation.Options[...]{Reporter: journal})

	// after the run
	fmt.Print(journal.Render())
*/
package status
