// See bag.go for the package overview.
package optionbag
