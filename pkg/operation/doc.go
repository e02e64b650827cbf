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
Package operation plays scripted ui actions against a workspace.

	+-------------+
	|   Script    |
	|   (YAML)    |
	+------+------+
	       |
	+------+------+
	|  Operation  |
	| (one step)  |
	+------+------+
	       |
	+------+------+
	|  Workspace  |
	+-------------+

🎯 Purpose:
- Drive the optimistic layer the way a user would, from a file
- Bind the ids the server hands out to names later steps can use
- Check what the surfaces show after each step

🔄 Flow:
1. Load parses and validates the script
2. Compile turns every step into an Operation
3. The Runner executes them in order, async groups concurrently
4. Progress goes to the Progress reporter after every step

🔍 Example:

	name: groceries
	steps:
	  - action: create_list
	    title: Groceries
	    ref: groceries
	  - action: create_task
	    list: $groceries
	    title: Buy milk
	    ref: milk
	  - action: delete_task
	    id: $milk
	  - action: undo
	    kind: task
	    id: $milk
	  - action: expect
	    list: $groceries
	    titles: [Buy milk]

Time inside a script is simulated: wait advances the clock the deletion
timers run on, so scripts finish instantly and always the same way.
*/
package operation
