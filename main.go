package main

import "github.com/andresmejia3/kiosk/cmd"

func main() {
	cmd.Execute()
}
