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
Package config loads and validates optimist settings.

	            +-------------+
	            |   Config    |
	            | (Settings)  |
	            +------+------+
	                   |
	      +------------+------------+
	      |            |            |
	+-----+----+ +-----+----+ +-----+----+
	|   YAML   | |   JSON   | |   HCL    |
	|  Parser  | |  Parser  | |  Parser  |
	+----------+ +----------+ +----------+

🎯 Purpose:
  - Picks a parser by file name
  - Fills defaults and parses durations
  - Hands typed settings to the workspace and cli

Every field is optional. An empty file gives a 4s undo window, no
retries, info logging and the in-memory backend.

🔍 Example:

	undo_window: 5s
	retry:
	  max_attempts: 3
	  initial_interval: 100ms
	log:
	  level: debug
	backend:
	  name: memory
	  latency: 50ms
	  seed_id: 1000
	notify:
	  undo_label: Undo

A file named .optimist is tried as YAML first and then as HCL.
*/
package config
