// Command warden runs the AI control plane gateway.
package main

func main() {
	Execute()
}
