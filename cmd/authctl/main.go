// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Command authctl is the operator CLI for the identity service: it issues,
// inspects and revokes tokens and applies database migrations.
package main

import "github.com/leozheng-Miao/leomall-sub001/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
