// Command facewatch runs the real-time face identification pipeline and
// manages its identity database.
package main

func main() {
	Execute()
}
