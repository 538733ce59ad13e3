package banner

import "fmt"

const Version = "1.0.0"

func Print() {
	banner := `
   ______         _       __      __       __
  / ____/__  ____| |     / /___ _/ /______/ /_
 / / __/ _ \/ __ \ | /| / / __ '/ __/ ___/ __ \
/ /_/ /  __/ /_/ / |/ |/ / /_/ / /_/ /__/ / / /
\____/\___/\____/|__/|__/\__,_/\__/\___/_/ /_/
                 v%s - Threat Monitor
    `
	fmt.Printf(banner, Version)
	fmt.Println("\n------------------------------------------------")
}
